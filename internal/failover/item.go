package failover

import "sync"

// FailedItemInfo describes where a failed item was headed.
type FailedItemInfo struct {
	TargetName string `json:"target_name"`
}

// FailedItem is a payload that could not be delivered.
type FailedItem struct {
	Payload []byte         `json:"payload"`
	Info    FailedItemInfo `json:"info"`

	release func()
	once    sync.Once
}

// NewFailedItem builds an item for target. release, if non-nil, runs once on Release.
func NewFailedItem(target string, payload []byte, release func()) *FailedItem {
	return &FailedItem{
		Payload: payload,
		Info:    FailedItemInfo{TargetName: target},
		release: release,
	}
}

// Release returns pooled resources held by the item. Safe to call repeatedly.
func (i *FailedItem) Release() {
	i.once.Do(func() {
		if i.release != nil {
			i.release()
		}
	})
}

// Releasable is implemented by values that hold resources.
type Releasable interface {
	Release()
}

// RetryListener receives items pulled from the queue. The return value reports
// whether redelivery succeeded; the item is removed either way.
type RetryListener interface {
	Notify(item *FailedItem) bool
}

// RetryListenerFunc adapts a function to RetryListener.
type RetryListenerFunc func(item *FailedItem) bool

func (f RetryListenerFunc) Notify(item *FailedItem) bool { return f(item) }

// valueCopier is implemented by stores whose Put serializes the value.
type valueCopier interface {
	CopiesValues() bool
}
