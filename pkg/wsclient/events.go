package wsclient

import (
	"github.com/LLIEPJIOK/room-relay/pkg/api"
)

// Event — классифицированное событие логического соединения.
type Event interface {
	connectionEvent()
}

type Connected struct{}

func (Connected) connectionEvent() {}

// Reconnecting несёт количество секунд до следующей попытки подключения.
type Reconnecting struct {
	RetryAfterSecs uint64
}

func (Reconnecting) connectionEvent() {}

type APIMessage struct {
	Message api.ServerToClientMessage
}

func (APIMessage) connectionEvent() {}

type Ended struct{}

func (Ended) connectionEvent() {}

type filterKind int

const (
	filterAny filterKind = iota
	filterConnected
	filterReconnecting
	filterCallReturn
	filterSubscriptionData
	filterPong
	filterInfo
	filterEnded
)

type filterItem struct {
	kind  filterKind
	hasID bool
	id    uint64
}

// Filter — набор условий подписки; совпадение хотя бы с одним означает
// доставку. Filter строится цепочкой и далее не меняется.
type Filter struct {
	items []filterItem
}

func NewFilter() Filter {
	return Filter{}
}

// add не дублирует условия; после Any более узкие условия избыточны
// и не регистрируются.
func (f Filter) add(item filterItem) Filter {
	for _, existing := range f.items {
		if existing == item || existing.kind == filterAny {
			return f
		}
	}

	items := make([]filterItem, len(f.items), len(f.items)+1)
	copy(items, f.items)

	return Filter{items: append(items, item)}
}

// Any совпадает с любым событием и вытесняет остальные условия.
func (f Filter) Any() Filter {
	return Filter{items: []filterItem{{kind: filterAny}}}
}

func (f Filter) Connected() Filter {
	return f.add(filterItem{kind: filterConnected})
}

func (f Filter) Reconnecting() Filter {
	return f.add(filterItem{kind: filterReconnecting})
}

func (f Filter) CallReturn() Filter {
	return f.add(filterItem{kind: filterCallReturn})
}

func (f Filter) CallReturnForID(callID uint64) Filter {
	return f.add(filterItem{kind: filterCallReturn, hasID: true, id: callID})
}

func (f Filter) SubscriptionData() Filter {
	return f.add(filterItem{kind: filterSubscriptionData})
}

func (f Filter) SubscriptionDataForID(subscriptionID uint64) Filter {
	return f.add(filterItem{kind: filterSubscriptionData, hasID: true, id: subscriptionID})
}

func (f Filter) Pong() Filter {
	return f.add(filterItem{kind: filterPong})
}

func (f Filter) Info() Filter {
	return f.add(filterItem{kind: filterInfo})
}

func (f Filter) Ended() Filter {
	return f.add(filterItem{kind: filterEnded})
}

func (f Filter) matches(event Event) bool {
	for _, item := range f.items {
		if itemMatches(item, event) {
			return true
		}
	}

	return false
}

func itemMatches(item filterItem, event Event) bool {
	switch item.kind {
	case filterAny:
		return true
	case filterConnected:
		_, ok := event.(Connected)
		return ok
	case filterReconnecting:
		_, ok := event.(Reconnecting)
		return ok
	case filterEnded:
		_, ok := event.(Ended)
		return ok
	}

	msg, ok := event.(APIMessage)
	if !ok {
		return false
	}

	switch item.kind {
	case filterPong:
		_, ok := msg.Message.(api.Pong)
		return ok
	case filterInfo:
		_, ok := msg.Message.(api.Info)
		return ok
	case filterCallReturn:
		ret, ok := msg.Message.(api.MethodCallReturn)
		if !ok {
			return false
		}

		return !item.hasID || ret.CallID == item.id
	case filterSubscriptionData:
		sub, ok := msg.Message.(api.SubscriptionData)
		if !ok {
			return false
		}

		return !item.hasID || sub.SubscriptionID == item.id
	default:
		return false
	}
}
