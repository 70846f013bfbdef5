package mcpserver

// NoteFormatContract describes the notes xq indexes and the query language
// search_notes accepts.
const NoteFormatContract = `# xq Note Format Contract

xq indexes Markdown files that start with a YAML frontmatter block.

## Structure

` + "```" + `markdown
---
title: Human-readable title        # REQUIRED - highest search weight
subtitle: Optional subtitle         # OPTIONAL
author: Jane Doe                    # OPTIONAL - string or list (also "authors")
tags:                               # OPTIONAL - string or list; lowercased
  - tag-one
date: 2025-01-15                    # OPTIONAL - date, datetime or unix seconds
---

Body text in standard Markdown.
` + "```" + `

## Rules

1. **Frontmatter comes first.** The opening ` + "`" + `---` + "`" + ` line must be the first
   non-blank line; the block closes with ` + "`" + `---` + "`" + ` or ` + "`" + `...` + "`" + `.
2. **` + "`" + `title` + "`" + ` is required.** Files without it are reported and skipped.
3. **Files without frontmatter** are skipped unless plain indexing is enabled,
   in which case the file name is the title.
4. **Markdown formatting is ignored** for search: only the visible text is indexed.

## Query syntax

| Form | Meaning |
|---|---|
| ` + "`" + `word` + "`" + ` | every word must match (AND) |
| ` + "`" + `"a phrase"` + "`" + ` | words must appear next to each other in one field |
| ` + "`" + `-word` + "`" + `, ` + "`" + `-"a phrase"` + "`" + ` | exclude documents that match |
| ` + "`" + `tag:x` + "`" + `, ` + "`" + `-tag:x` + "`" + ` | require or exclude a tag |
| ` + "`" + `since:2024-01-01` + "`" + ` | dated on or after |
| ` + "`" + `until:2024-12-31` + "`" + ` | dated on or before (a bare date covers the whole day) |
| ` + "`" + `author:name` + "`" + ` | an author contains name |
| ` + "`" + `title:word` + "`" + ` | word must appear in the title |

Matching ignores case. Results are ranked by field-weighted term frequency,
boosted by how often a note was selected before.
`
