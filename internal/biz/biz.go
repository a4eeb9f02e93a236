package biz

import (
	"github.com/rs/zerolog"

	"github.com/devricklin/keyword-forwarder/internal/biz/domain"
	"github.com/devricklin/keyword-forwarder/internal/biz/usecase"
	"github.com/devricklin/keyword-forwarder/internal/data"
)

// Usecases contains all usecases
type Usecases struct {
	Group   *usecase.GroupUsecase
	Forward *usecase.ForwardUsecase
}

// NewUsecases wires the usecases on top of the repositories
func NewUsecases(
	repos *data.Repositories,
	matcher *domain.KeywordMatcher,
	groupCfg usecase.GroupConfig,
	forwardCfg usecase.ForwardConfig,
	logger *zerolog.Logger,
) *Usecases {
	groupUC := usecase.NewGroupUsecase(repos.Message, groupCfg)
	return &Usecases{
		Group:   groupUC,
		Forward: usecase.NewForwardUsecase(repos.Message, repos.Store, groupUC, matcher, forwardCfg, logger),
	}
}
