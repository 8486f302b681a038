package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/studynote/internal/dbx"
	"github.com/dmitrijs2005/studynote/internal/server/repositories/documents"
	"github.com/dmitrijs2005/studynote/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/studynote/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to a DBTX, so services can run
// several of them inside one transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
	Documents(db dbx.DBTX) documents.Repository
}
