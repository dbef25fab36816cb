// README: SQL migrations embedded into the binary, applied in file-name order.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
