package postgres

import (
	"github.com/jackc/pgx/v5/pgxpool"
	repo "github.com/kreativelabske/lipia-backend/internal/repository"
)

type Repositories struct {
	Transactions repo.Transactions
	WordCredits  repo.WordCredits
	AuditLogs    repo.AuditLogs
}

func NewRepositories(pool *pgxpool.Pool) Repositories {
	return Repositories{
		Transactions: &transactionsRepo{pool},
		WordCredits:  &wordCreditsRepo{pool},
		AuditLogs:    &auditLogsRepo{pool},
	}
}
