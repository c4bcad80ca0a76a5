// Package all wires all built-in storage backends into the storage factory.
//
// This package exists purely for side effects: importing it (even as a blank
// import) runs the init functions of each backend, which register their
// factories (and, for postgres, the typing generator).
//
//   - "postgres" (destsync/internal/storage/postgres)
//   - "mysql"    (destsync/internal/storage/mysql)
//   - "mssql"    (destsync/internal/storage/mssql)
//   - "sqlite"   (destsync/internal/storage/sqlite)
//
// A binary that supports only a subset of backends can blank-import the
// required backend packages directly instead.
package all

import (
	_ "destsync/internal/storage/mssql"
	_ "destsync/internal/storage/mysql"
	_ "destsync/internal/storage/postgres"
	_ "destsync/internal/storage/sqlite"
)
