package registry

import (
	"github.com/loomworks/loom/pkg/executors/action"
	"github.com/loomworks/loom/pkg/executors/condition"
	"github.com/loomworks/loom/pkg/executors/dbquery"
	"github.com/loomworks/loom/pkg/executors/email"
	"github.com/loomworks/loom/pkg/executors/httprequest"
	"github.com/loomworks/loom/pkg/executors/start"
	"github.com/loomworks/loom/pkg/protocol"
	"github.com/loomworks/loom/pkg/template"
)

// RegisterDefaults registers all built-in node executors.
func (r *Registry) RegisterDefaults() error {
	resolver := template.NewResolver(r.logger)

	defaults := []protocol.Executor{
		start.NewStartExecutor(),
		action.NewActionExecutor(resolver),
		condition.NewConditionExecutor(resolver),
		httprequest.NewHTTPRequestExecutor(resolver),
		email.NewEmailExecutor(resolver),
		dbquery.NewDatabaseQueryExecutor(resolver),
	}

	for _, executor := range defaults {
		if err := r.Register(executor); err != nil {
			return err
		}
	}

	return nil
}
