// Package commands implements the zhpublish command tree.
//
//	zhpublish login
//	zhpublish publish --title T --content-file body.md --image cover.png --topic Go
//	zhpublish call < tool.xml
//	zhpublish config init [path]
package commands
