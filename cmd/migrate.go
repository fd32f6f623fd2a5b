/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

/*
Package main provides the CLI commands for managing database migrations of the grid broker.
This includes commands for applying and rolling back migrations.
*/

package main

import (
	"fmt"
	"log"

	"github.com/blnkfinance/gridbroker"
	"github.com/blnkfinance/gridbroker/database"
	migrate "github.com/rubenv/sql-migrate"
	"github.com/spf13/cobra"
)

const migrationSchema = "gridbroker"

func migrations() migrate.EmbedFileSystemMigrationSource {
	return migrate.EmbedFileSystemMigrationSource{
		FileSystem: gridbroker.SQLFiles,
		Root:       "sql",
	}
}

// migrateCommands creates the root command for migration-related operations.
func migrateCommands(b *brokerInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "run grid broker migrations",
	}

	cmd.AddCommand(migrateUpCommands(b))
	cmd.AddCommand(migrateDownCommands(b))

	return cmd
}

// migrateUpCommands creates the command for applying migrations.
func migrateUpCommands(b *brokerInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use: "up",
		Run: func(cmd *cobra.Command, args []string) {
			db, err := database.ConnectDB(b.cnf.DataSource.Dns)
			if err != nil {
				log.Printf("Error connecting to database: %v", err)
				return
			}
			defer db.Close()

			if _, err := db.Exec("CREATE SCHEMA IF NOT EXISTS " + migrationSchema); err != nil {
				log.Printf("Error creating schema: %v", err)
				return
			}
			migrate.SetSchema(migrationSchema)

			n, err := migrate.Exec(db, "postgres", migrations(), migrate.Up)
			if err != nil {
				log.Printf("Error migrating up: %v", err)
			} else {
				fmt.Printf("Applied %d migrations!\n", n)
			}
		},
	}

	return cmd
}

// migrateDownCommands creates the command for rolling back migrations.
func migrateDownCommands(b *brokerInstance) *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use: "down",
		Run: func(cmd *cobra.Command, args []string) {
			db, err := database.ConnectDB(b.cnf.DataSource.Dns)
			if err != nil {
				log.Printf("Error connecting to database: %v", err)
				return
			}
			defer db.Close()

			migrate.SetSchema(migrationSchema)

			n, err := migrate.ExecMax(db, "postgres", migrations(), migrate.Down, steps)
			if err != nil {
				log.Printf("Error migrating down: %v", err)
			} else {
				fmt.Printf("Rolled back %d migrations!\n", n)
			}
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 0, "number of migrations to roll back, 0 rolls back all")

	return cmd
}
