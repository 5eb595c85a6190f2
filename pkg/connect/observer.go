package connect

import (
	"github.com/google/uuid"
	"github.com/vango-dev/connect/pkg/selector"
)

// Info identifies a consumer in observer callbacks.
type Info struct {
	ID          uuid.UUID
	Name        string
	RenderCount int
}

// Observer receives consumer lifecycle events. Implementations must be fast;
// they run inside notification passes.
type Observer interface {
	OnMount(info Info)
	OnUnmount(info Info)
	// OnDerive reports a pipeline run. changed is whether the consumer will
	// re-render; err is a projection error.
	OnDerive(info Info, change selector.Change, changed bool, err error)
	OnRender(info Info, err error)
	// OnNotify reports that the consumer forwarded a notification to nested
	// listeners.
	OnNotify(info Info, nested int)
}

// NopObserver ignores every event. Embed it to implement part of Observer.
type NopObserver struct{}

func (NopObserver) OnMount(Info)                                {}
func (NopObserver) OnUnmount(Info)                              {}
func (NopObserver) OnDerive(Info, selector.Change, bool, error) {}
func (NopObserver) OnRender(Info, error)                        {}
func (NopObserver) OnNotify(Info, int)                          {}

// Observers fans events out to several observers in order.
type Observers []Observer

func (o Observers) OnMount(info Info) {
	for _, obs := range o {
		obs.OnMount(info)
	}
}

func (o Observers) OnUnmount(info Info) {
	for _, obs := range o {
		obs.OnUnmount(info)
	}
}

func (o Observers) OnDerive(info Info, change selector.Change, changed bool, err error) {
	for _, obs := range o {
		obs.OnDerive(info, change, changed, err)
	}
}

func (o Observers) OnRender(info Info, err error) {
	for _, obs := range o {
		obs.OnRender(info, err)
	}
}

func (o Observers) OnNotify(info Info, nested int) {
	for _, obs := range o {
		obs.OnNotify(info, nested)
	}
}
