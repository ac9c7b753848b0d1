package mcpserver

// NoteFormatContract describes the note conventions the reconciler enforces.
// Agents should follow it when creating or renaming notes.
const NoteFormatContract = `# Denote Note Format

Every note is one Markdown file directly inside the corpus directory.

## Filename

` + "```" + `
<identifier>--<slug>__<tag>(_<tag>)*.md
20250114T100100--website-redesign__project.md
20250201T090000--draft-copy__task_writing.md
` + "```" + `

1. **Identifier** is a local timestamp ` + "`" + `YYYYMMDDTHHMMSS` + "`" + `. It is the note's identity
   and must be unique across the corpus.
2. **Slug** is lowercase kebab-case and may not be empty.
3. **Tags** follow ` + "`" + `__` + "`" + ` and are separated by single underscores.
4. The tag ` + "`" + `task` + "`" + ` marks a task and ` + "`" + `project` + "`" + ` marks a project. A note tagged
   with both is a conflict and is left alone.

## Frontmatter

` + "```" + `markdown
---
title: Draft copy
index_id: 7
type: task
project_id: 20250114T100100
---

Body text in standard Markdown.
` + "```" + `

- ` + "`" + `title` + "`" + ` is the display name. Missing titles are synthesized from the slug.
- ` + "`" + `index_id` + "`" + ` is a positive integer assigned by the reconciler. Do not set it by hand.
- ` + "`" + `type` + "`" + ` mirrors the filename tag.
- ` + "`" + `project_id` + "`" + ` (tasks only) holds the identifier of the owning project.

## Fields the reconciler removes

- ` + "`" + `id` + "`" + ` and ` + "`" + `identifier` + "`" + `: the filename carries the identity.
- ` + "`" + `task_id` + "`" + `: superseded by ` + "`" + `index_id` + "`" + `.
- ` + "`" + `project` + "`" + `: a legacy free-text project name. It is used once to resolve
  ` + "`" + `project_id` + "`" + ` and then dropped.

## Rules

1. Never reuse an identifier. When two notes share one, the reconciler keeps the
   first in filename order and moves the others forward to the next free second.
2. Reference projects by identifier, not by name.
3. The index counter lives in ` + "`" + `.denote-task-counter.json` + "`" + `. Do not edit it.
4. Encoding is UTF-8. Frontmatter keys are lowercase English.
`
