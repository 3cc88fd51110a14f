// Package ipf reads and writes instrument profile files.
//
// An instrument profile file is a comma-separated text stream in which every
// data row describes one tradable instrument. Rows are typed by their first
// cell, and the meaning of the remaining cells is given by the most recent
// format declaration for that type:
//
//	#STOCK::=TYPE,SYMBOL,DESCRIPTION,CFI
//	STOCK,IBM,International Business Machines,ESNTPR
//	#OPTION::=TYPE,SYMBOL,UNDERLYING,EXPIRATION,STRIKE
//	OPTION,.IBM240119C150,IBM,2024-01-19,150
//	##
//	##COMPLETE
//
// A row of exactly "##" asks the consumer to flush what it has. "##COMPLETE"
// marks the end of a full snapshot. Any other row starting with "#" is a
// comment, and blank rows are ignored.
//
// # Fields
//
// The canonical fields form a closed catalog (see Fields) with a kind each:
// text, number or date. Numbers and dates are stored in their native form and
// rendered through package codec, so a composed value parses back unchanged.
// Any other column name is a custom field kept as text on the profile.
//
// # Parsing
//
// Parser pulls rows from a RecordReader and yields profiles in file order. A
// row for a type without a declaration, a row whose cell count differs from
// its declaration, and a value that does not parse as its field kind all fail
// with a *FormatError naming the line and row.
//
// # Composing
//
// Composer is the dual of Parser. It remembers which fields it has declared
// for every type and writes a wider declaration just before the first row
// that needs a new field. Declarations never shrink, so every row of a type
// can be read with the latest declaration of that type.
//
// # Files
//
// ReadAll, ReadFile, WriteAll and WriteFile wrap the two with the containers
// profile catalogs are usually shipped in. A name ending in ".gz" is gzip, a
// name ending in ".zip" is a zip archive whose entries are read in order, and
// anything else is plain text.
package ipf
