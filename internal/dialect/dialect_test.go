package dialect_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koba/db-sync/internal/dialect"
	"github.com/koba/db-sync/internal/schema"
)

func TestGet(t *testing.T) {
	tests := map[string]string{
		"mysql":      "mysql",
		"MariaDB":    "mysql",
		"postgresql": "postgres",
		"pgsql":      "postgres",
		"mssql":      "sqlserver",
		"sqlite3":    "sqlite",
	}
	for name, want := range tests {
		d, err := dialect.Get(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, d.Name())
	}

	_, err := dialect.Get("oracle")
	assert.EqualError(t, err, "unsupported database type: oracle")
}

func TestQuote(t *testing.T) {
	assert.Equal(t, "`users`", dialect.MySQL().Quote("users"))
	assert.Equal(t, "`app`.`users`", dialect.MySQL().Quote("app.users"))
	assert.Equal(t, `"odd""name"`, dialect.Postgres().Quote(`odd"name`))
	assert.Equal(t, "[dbo].[users]", dialect.SQLServer().Quote("dbo.users"))
	assert.Equal(t, `"users"`, dialect.SQLite().Quote("users"))
}

func TestLiteral(t *testing.T) {
	mysql := dialect.MySQL()
	assert.Equal(t, "NULL", mysql.Literal(nil))
	assert.Equal(t, "1", mysql.Literal(true))
	assert.Equal(t, "42", mysql.Literal(int64(42)))
	assert.Equal(t, "1.5", mysql.Literal(1.5))
	assert.Equal(t, `'it''s \\ fine'`, mysql.Literal(`it's \ fine`))
	assert.Equal(t, "CURRENT_TIMESTAMP", mysql.Literal(schema.Fragment("CURRENT_TIMESTAMP")))

	assert.Equal(t, "TRUE", dialect.Postgres().Literal(true))
	assert.Equal(t, "'it''s'", dialect.Postgres().Literal("it's"))
}

func TestColumnDefinition(t *testing.T) {
	tests := []struct {
		dialect string
		column  func(types *schema.TypeRegistry) *schema.Column
		want    string
	}{
		{"mysql", func(r *schema.TypeRegistry) *schema.Column { return schema.NewColumn(r, "id").Primary() },
			"`id` int NOT NULL AUTO_INCREMENT"},
		{"mysql", func(r *schema.TypeRegistry) *schema.Column {
			return schema.NewColumn(r, "email").String(120).SetNullable(false).SetDefault("")
		}, "`email` varchar(120) NOT NULL DEFAULT ''"},
		{"mysql", func(r *schema.TypeRegistry) *schema.Column { return schema.NewColumn(r, "status").Enum("on", "off") },
			"`status` enum('on','off')"},
		{"mysql", func(r *schema.TypeRegistry) *schema.Column { return schema.NewColumn(r, "price").Decimal(8, 2) },
			"`price` decimal(8,2)"},
		{"postgres", func(r *schema.TypeRegistry) *schema.Column { return schema.NewColumn(r, "id").BigPrimary() },
			`"id" bigserial NOT NULL`},
		{"postgres", func(r *schema.TypeRegistry) *schema.Column {
			return schema.NewColumn(r, "created_at").TimestampTZ().SetDefault(schema.Fragment("now()"))
		}, `"created_at" timestamp with time zone DEFAULT now()`},
		{"postgres", func(r *schema.TypeRegistry) *schema.Column { return schema.NewColumn(r, "active").Boolean().SetDefault("1") },
			`"active" boolean DEFAULT TRUE`},
		{"sqlserver", func(r *schema.TypeRegistry) *schema.Column { return schema.NewColumn(r, "id").Primary() },
			"[id] int IDENTITY(1,1) NOT NULL"},
		{"sqlserver", func(r *schema.TypeRegistry) *schema.Column { return schema.NewColumn(r, "body").Text() },
			"[body] varchar(max) NULL"},
		{"sqlite", func(r *schema.TypeRegistry) *schema.Column { return schema.NewColumn(r, "id").Primary() },
			`"id" integer PRIMARY KEY AUTOINCREMENT NOT NULL`},
		{"sqlite", func(r *schema.TypeRegistry) *schema.Column { return schema.NewColumn(r, "status").Enum("on", "off") },
			`"status" varchar(3) CHECK ("status" IN ('on', 'off'))`},
	}

	for _, tt := range tests {
		t.Run(tt.dialect+" "+tt.want, func(t *testing.T) {
			d, err := dialect.Get(tt.dialect)
			require.NoError(t, err)
			c := tt.column(d.Types())
			require.NoError(t, c.Err())
			assert.Equal(t, tt.want, d.ColumnDefinition("items", c))
		})
	}
}

func TestEnumCheckConstraint(t *testing.T) {
	for _, d := range []dialect.Dialect{dialect.Postgres(), dialect.SQLServer()} {
		t.Run(d.Name(), func(t *testing.T) {
			c := schema.NewColumn(d.Types(), "status").Enum("on", "off")
			def := d.ColumnDefinition("items", c)
			assert.Contains(t, def, " CONSTRAINT ")
			assert.Contains(t, def, "CHECK ("+d.Quote("status")+" IN ('on', 'off'))")
			assert.Contains(t, def, "(3)")
		})
	}
}

func TestAlterColumn(t *testing.T) {
	pg := dialect.Postgres()
	initial := schema.NewColumn(pg.Types(), "age").Integer()
	current := schema.NewColumn(pg.Types(), "age").BigInteger().SetNullable(false).SetDefault(0)
	assert.Equal(t, []string{
		`ALTER TABLE "people" ALTER COLUMN "age" TYPE bigint USING "age"::bigint`,
		`ALTER TABLE "people" ALTER COLUMN "age" SET NOT NULL`,
		`ALTER TABLE "people" ALTER COLUMN "age" SET DEFAULT 0`,
	}, pg.AlterColumn("people", initial, current))

	mysql := dialect.MySQL()
	assert.Equal(t, []string{"ALTER TABLE `people` MODIFY COLUMN `age` bigint"},
		mysql.AlterColumn("people", schema.NewColumn(mysql.Types(), "age").Integer(), schema.NewColumn(mysql.Types(), "age").BigInteger()))

	mssql := dialect.SQLServer()
	statements := mssql.AlterColumn("people", schema.NewColumn(mssql.Types(), "age").Integer(),
		schema.NewColumn(mssql.Types(), "age").Integer().SetDefault(1))
	require.Len(t, statements, 4)
	assert.Contains(t, statements[0], "DROP CONSTRAINT IF EXISTS")
	assert.Equal(t, "ALTER TABLE [people] ALTER COLUMN [age] int NULL", statements[2])
	assert.Contains(t, statements[3], "DEFAULT 1 FOR [age]")

	assert.Empty(t, dialect.SQLite().AlterColumn("people", initial, current))
}

func TestConstraintStatements(t *testing.T) {
	fk := schema.NewForeignKey("posts_user_fk", "user_id").References("users", "id").SetOnDelete(schema.Restrict)
	idx := schema.NewIndex("posts_created_index", "created_at DESC", "id").SetUnique(true)

	mysql := dialect.MySQL()
	assert.Equal(t, "ALTER TABLE `posts` ADD CONSTRAINT `posts_user_fk` FOREIGN KEY (`user_id`) REFERENCES `users` (`id`) ON DELETE RESTRICT ON UPDATE NO ACTION",
		mysql.AddForeignKey("posts", fk))
	assert.Equal(t, "ALTER TABLE `posts` DROP FOREIGN KEY `posts_user_fk`", mysql.DropForeignKey("posts", fk))
	assert.Equal(t, "CREATE UNIQUE INDEX `posts_created_index` ON `posts` (`created_at` DESC, `id`)", mysql.CreateIndex("posts", idx))
	assert.Equal(t, "DROP INDEX `posts_created_index` ON `posts`", mysql.DropIndex("posts", idx))

	pg := dialect.Postgres()
	assert.Equal(t, `ALTER TABLE "posts" DROP CONSTRAINT "posts_user_fk"`, pg.DropForeignKey("posts", fk))
	assert.Equal(t, `DROP INDEX "posts_created_index"`, pg.DropIndex("posts", idx))
	assert.Equal(t, `ALTER TABLE "posts" ADD CONSTRAINT "posts_pkey" PRIMARY KEY ("id")`, pg.AddPrimaryKey("posts", []string{"id"}))
	stmt, err := pg.DropPrimaryKey("app.posts")
	require.NoError(t, err)
	assert.Equal(t, `ALTER TABLE "app"."posts" DROP CONSTRAINT "posts_pkey"`, stmt)

	mssql := dialect.SQLServer()
	assert.Contains(t, mssql.AddForeignKey("posts", fk), "ON DELETE NO ACTION ON UPDATE NO ACTION")
	assert.Equal(t, "EXEC sp_rename 'posts', 'articles'", mssql.RenameTable("posts", "articles"))
	assert.Equal(t, "EXEC sp_rename 'posts.title', 'headline', 'COLUMN'", mssql.RenameColumn("posts", "title", "headline"))

	sqlite := dialect.SQLite()
	assert.Equal(t, `CREATE UNIQUE INDEX IF NOT EXISTS "posts_created_index" ON "posts" ("created_at" DESC, "id")`, sqlite.CreateIndex("posts", idx))
	_, err = sqlite.DropPrimaryKey("posts")
	assert.Error(t, err)
	assert.Equal(t, `DELETE FROM "posts"`, sqlite.Truncate("posts"))
}

func TestSavepoints(t *testing.T) {
	tests := []struct {
		dialect  dialect.Dialect
		save     string
		release  string
		rollback string
	}{
		{dialect.MySQL(), "SAVEPOINT `SVP1`", "RELEASE SAVEPOINT `SVP1`", "ROLLBACK TO SAVEPOINT `SVP1`"},
		{dialect.Postgres(), `SAVEPOINT "SVP1"`, `RELEASE SAVEPOINT "SVP1"`, `ROLLBACK TO SAVEPOINT "SVP1"`},
		{dialect.SQLServer(), "SAVE TRANSACTION [SVP1]", "", "ROLLBACK TRANSACTION [SVP1]"},
		{dialect.SQLite(), `SAVEPOINT "SVP1"`, `RELEASE SAVEPOINT "SVP1"`, `ROLLBACK TO SAVEPOINT "SVP1"`},
	}

	for _, tt := range tests {
		t.Run(tt.dialect.Name(), func(t *testing.T) {
			assert.Equal(t, tt.save, tt.dialect.Savepoint("SVP1"))
			assert.Equal(t, tt.release, tt.dialect.ReleaseSavepoint("SVP1"))
			assert.Equal(t, tt.rollback, tt.dialect.RollbackToSavepoint("SVP1"))
		})
	}
}

func TestCapabilities(t *testing.T) {
	assert.False(t, dialect.MySQL().TransactionalDDL())
	assert.True(t, dialect.Postgres().TransactionalDDL())
	assert.True(t, dialect.MySQL().SupportsAlter())
	assert.False(t, dialect.SQLite().SupportsAlter())
}

// Every abstract type a registry renders reads back as a type of the same registry.
func TestRegistryReverseCoversMapping(t *testing.T) {
	for _, d := range []dialect.Dialect{dialect.MySQL(), dialect.Postgres(), dialect.SQLServer(), dialect.SQLite()} {
		t.Run(d.Name(), func(t *testing.T) {
			for _, abstract := range d.Types().Types() {
				c := schema.NewColumn(d.Types(), "col")
				require.NoError(t, c.SetType(abstract))
				if abstract == schema.TypeEnum {
					c.Enum("a")
				}
				assert.NotEqual(t, schema.TypeUnknown, c.AbstractType(), abstract)
			}
		})
	}
}
