package pgwire

// pgTypeNames maps the type OIDs seen in everyday traffic to their catalog
// names. Static reference datum; anything else renders as "unknown".
var pgTypeNames = map[uint32]string{
	16:   "bool",
	17:   "bytea",
	18:   "char",
	19:   "name",
	20:   "int8",
	21:   "int2",
	23:   "int4",
	25:   "text",
	26:   "oid",
	114:  "json",
	142:  "xml",
	700:  "float4",
	701:  "float8",
	1000: "bool[]",
	1001: "bytea[]",
	1002: "char[]",
	1003: "name[]",
	1005: "int2[]",
	1007: "int4[]",
	1009: "text[]",
	1014: "char[]",
	1015: "varchar[]",
	1016: "int8[]",
	1021: "float4[]",
	1022: "float8[]",
	1042: "bpchar",
	1043: "varchar",
	1082: "date",
	1083: "time",
	1114: "timestamp",
	1184: "timestamptz",
	1186: "interval",
	1266: "timetz",
	1560: "bit",
	1562: "varbit",
	1700: "numeric",
	2950: "uuid",
	3802: "jsonb",
}

// TypeName returns the catalog name for a type OID, or "unknown".
func TypeName(oid uint32) string {
	if name, ok := pgTypeNames[oid]; ok {
		return name
	}
	return "unknown"
}
