// Package mariadbconn binds MariaDB Connector/C's non-blocking API
// (mysql_*_start/_cont, the same functions the original perl5-ev-mariadb
// module wraps) to the asyncmaria.Conn and asyncmaria.Stmt interfaces.
// It requires libmariadb (or libmysqlclient, which exposes the same
// *_start/_cont entry points) built with MYSQL_OPT_NONBLOCK support, and
// is only compiled when cgo is enabled.
package mariadbconn
