package mcpserver

// ConventionsURI is the resource URI of the unit naming conventions.
const ConventionsURI = "vbsb://conventions"

// Conventions describes how file names decide where a unit lands in the
// bundle, for LLM consumers that create or rename source files.
const Conventions = `# vbsb Unit Conventions

Every ` + "`.vbs`" + ` file under the entry directory is a unit. Its file name alone
decides how it is bundled.

## Categories

| File name            | Category | Bundled              |
|----------------------|----------|----------------------|
| ` + "`^setup.vbs`" + `         | header   | first                |
| ` + "`helpers.vbs`" + `        | standard | after all headers    |
| ` + "`$main.vbs`" + `          | footer   | last                 |
| ` + "`helpers.spec.vbs`" + `   | test     | never (validated)    |
| ` + "`helpers.test.vbs`" + `   | test     | never (validated)    |

## Rules

1. **The marker is the first character of the file name**, not of the path:
   ` + "`lib/^init.vbs`" + ` is a header, ` + "`^lib/init.vbs`" + ` is not.
2. **Test suffixes are case-insensitive.** ` + "`A.SPEC.VBS`" + ` is a test unit.
3. **Order inside a category is discovery order.** Units are not sorted by name
   once tracked; a one-shot build discovers them in lexical walk order.
4. **Files are concatenated verbatim.** No separators are inserted, so end every
   unit with a newline.
5. **Any failing unit blocks the bundle**, test units included.
6. **Dot-files and dot-directories are ignored.**
`
