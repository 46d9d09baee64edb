package ports

import (
	"context"

	"github.com/nathantilsley/chart-ident/internal/identity/domain"
)

// CheckUseCase is the driving port for checking the identities of the
// charts a pull request changes.
type CheckUseCase interface {
	Execute(ctx context.Context, pr domain.PRContext) error
}
