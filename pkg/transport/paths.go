package transport

import "net/url"

// DataPath is /data/{db}/{table}.
func DataPath(db, table string) string {
	return "/data/" + url.PathEscape(db) + "/" + url.PathEscape(table)
}

// RecordPath is /data/{db}/{table}/{id}.
func RecordPath(db, table, id string) string {
	return DataPath(db, table) + "/" + url.PathEscape(id)
}

// Query endpoint kinds for QueryPath.
const (
	QueryPage   = ""
	QueryCount  = "count"
	QueryUpdate = "update"
	QueryDelete = "delete"
	QueryStream = "stream"
)

// QueryPath is /data/{db}/query/{table} for QueryPage and
// /data/{db}/query/{kind}/{table} otherwise.
func QueryPath(db, kind, table string) string {
	p := "/data/" + url.PathEscape(db) + "/query/"
	if kind != QueryPage {
		p += kind + "/"
	}
	return p + url.PathEscape(table)
}
