package web

import (
	. "maragu.dev/gomponents"
	. "maragu.dev/gomponents/html"
)

// ConsolePage renders the query console: schema reference, input, result
// and history.
func ConsolePage(s Schema) Node {
	return Doctype(HTML(
		Lang("en"),
		Head(
			Meta(Charset("utf-8")),
			Meta(Name("viewport"), Content("width=device-width, initial-scale=1")),
			TitleEl(Text("versionsql")),
			Link(Rel("icon"), Href("data:,")),
			Link(Rel("stylesheet"), Href("console.css")),
		),
		Body(
			Header(
				H1(Text("versionsql")),
				P(Text("Read-only SQL over the CurseForge game version catalog.")),
			),
			Section(
				ID("schema"),
				H2(Text("Schema")),
				Map(s.Tables, schemaTable),
			),
			Section(
				ID("console"),
				H2(Text("Query")),
				Textarea(
					ID("query"),
					Name("query"),
					Rows("8"),
					Attr("spellcheck", "false"),
					Placeholder("SELECT * FROM versions LIMIT 10"),
				),
				P(
					Button(ID("execute"), Type("button"), Text("Execute")),
					Small(Text(" Ctrl+Enter")),
				),
				H2(Text("Result")),
				Pre(ID("result")),
				H2(Text("History")),
				Ul(ID("history")),
			),
			Script(Raw(consoleJS)),
		),
	))
}

func schemaTable(t TableDoc) Node {
	return Table(
		Class("schema"),
		Caption(
			Code(Text(t.Name)),
			If(t.Description != "", Text(" "+t.Description)),
		),
		THead(Tr(Th(Text("Column")), Th(Text("Type")), Th(Text("Description")))),
		TBody(Map(t.Columns, func(c ColumnDoc) Node {
			return Tr(
				Td(Code(Text(c.Name))),
				Td(Text(c.Type)),
				Td(Text(c.Description)),
			)
		})),
	)
}

// NotFoundPage is served for any unknown path.
func NotFoundPage(path string) Node {
	return Doctype(HTML(
		Lang("en"),
		Head(
			Meta(Charset("utf-8")),
			TitleEl(Text("Not found | versionsql")),
		),
		Body(
			H1(Text("404 Not Found")),
			P(Text("Nothing here: "), Code(Text(path))),
			P(A(Href("/static/index.html"), Text("Open the query console"))),
		),
	))
}
