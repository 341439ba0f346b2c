package postgres

import "github.com/ekaya-inc/nodepool/pkg/adapters/datasource"

func init() {
	datasource.Register(datasource.AdapterRegistration{
		Info: datasource.AdapterInfo{
			Kind:        Kind,
			DisplayName: "pgx pool",
			Description: "Fixed-size pgxpool connected to one PostgreSQL node",
		},
		Factory: Factory,
	})
}
