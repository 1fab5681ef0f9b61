// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at http://mozilla.org/MPL/2.0/.

package asyncmaria

// escapeBytes is the standalone fallback used by Client.Escape when no
// live connection is available to perform a charset-aware escape
// (mysql_real_escape_string). Adapted from go-sql-driver/mysql's
// interpolation escaper: same escape table, generalized to return just
// the escaped content (no surrounding quotes), since callers decide
// their own quoting.
func escapeBytes(s string, noBackslashEscapes bool) []byte {
	buf := make([]byte, 0, len(s))
	if noBackslashEscapes {
		return escapeQuotes(buf, s)
	}
	return escapeBackslash(buf, s)
}

// escapeBackslash escapes the characters MySQL's default SQL_MODE
// requires backslash-escaping: https://github.com/mysql/mysql-server/blob/mysql-5.7.5/mysys/charset.c#L823-L932
func escapeBackslash(buf []byte, v string) []byte {
	for i := 0; i < len(v); i++ {
		switch c := v[i]; c {
		case '\x00':
			buf = append(buf, '\\', '0')
		case '\n':
			buf = append(buf, '\\', 'n')
		case '\r':
			buf = append(buf, '\\', 'r')
		case '\x1a':
			buf = append(buf, '\\', 'Z')
		case '\'':
			buf = append(buf, '\\', '\'')
		case '"':
			buf = append(buf, '\\', '"')
		case '\\':
			buf = append(buf, '\\', '\\')
		default:
			buf = append(buf, c)
		}
	}
	return buf
}

// escapeQuotes doubles apostrophes, for connections running with
// NO_BACKSLASH_ESCAPES: https://github.com/mysql/mysql-server/blob/mysql-5.7.5/mysys/charset.c#L963-L1038
func escapeQuotes(buf []byte, v string) []byte {
	for i := 0; i < len(v); i++ {
		c := v[i]
		if c == '\'' {
			buf = append(buf, '\'', '\'')
		} else {
			buf = append(buf, c)
		}
	}
	return buf
}
