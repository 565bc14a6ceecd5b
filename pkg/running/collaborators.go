package running

import (
	"context"

	"benchrun/pkg/models"
	"benchrun/pkg/runconfig"
)

// Converter turns benchmark targets into run descriptors. A nil descriptor
// (or an empty slice) means the target declares nothing to run. Invalid
// targets are reported as *models.DeclarationError.
type Converter interface {
	TypeToDescriptor(ctx context.Context, t models.TypeDescriptor, cfg *runconfig.Config, args []string) (*models.RunDescriptor, error)
	MethodsToDescriptor(ctx context.Context, t models.TypeDescriptor, methods []string, cfg *runconfig.Config, args []string) (*models.RunDescriptor, error)
	URLToDescriptors(ctx context.Context, url string, cfg *runconfig.Config, args []string) ([]models.RunDescriptor, error)
	SourceToDescriptors(ctx context.Context, text string, cfg *runconfig.Config, args []string) ([]models.RunDescriptor, error)
}

// Engine executes descriptors and returns one summary per descriptor, in
// input order.
type Engine interface {
	Execute(ctx context.Context, ds []models.RunDescriptor) ([]*models.Summary, error)
}

// Enumerator lists the runnable types of a module in declaration order.
type Enumerator interface {
	RunnableTypes(m models.Module) []models.TypeDescriptor
}
