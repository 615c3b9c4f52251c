// Package docmodel holds the exporter's document values: pages and blog
// entries sharing one shape, the filename and directory rules that place them
// in the output tree, and the structural facts extracted from their macro
// markup (children listings, inclusions, blog aggregation, code languages).
//
// Page bodies come in two dialects. The legacy dialect embeds inline macros
// such as {children:depth=2}; the structured dialect uses ac:structured-macro
// elements. Both are reduced to the same Macro value before facts are applied,
// so equivalent input yields identical Facts.
package docmodel
