package sqldb

import "github.com/ekaya-inc/nodepool/pkg/adapters/datasource"

func init() {
	datasource.Register(datasource.AdapterRegistration{
		Info: datasource.AdapterInfo{
			Kind:        Kind,
			DisplayName: "database/sql pool",
			Description: "Fixed-size *sql.DB using any registered database/sql driver (default pgx)",
		},
		Factory: Factory,
	})
}
