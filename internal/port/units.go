package port

import (
	"github.com/go-resty/resty/v2"

	"github.com/voxrow/voxrow/pkg/pipeline"
)

// Units are the long-lived units of work the pipelines bind per call: one
// over the HTTP port, one over the object store and one over the local
// filesystem.
type Units struct {
	HTTP    *pipeline.UnitOfWork
	Storage *pipeline.UnitOfWork
	File    *pipeline.UnitOfWork
}

// NewUnits wraps one shared HTTP client and one shared object store. opts
// apply to every unit.
func NewUnits(client *resty.Client, store ObjectStore, opts ...pipeline.Option) Units {
	return Units{
		HTTP:    pipeline.NewUnitOfWork("http", NewHTTP(client), opts...),
		Storage: pipeline.NewUnitOfWork("object-storage", NewObjectStorage(store), opts...),
		File:    pipeline.NewUnitOfWork("file", NewFile(), opts...),
	}
}
