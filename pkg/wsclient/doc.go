// Package wsclient мультиплексирует одно физическое WebSocket-соединение
// во множество логических подписок на события:
//   - Автоматическое переподключение с экспоненциальной задержкой
//   - Классификация входящих кадров в события ApiClientEvent
//   - Одноразовые и постоянные подписки с фильтрами по типу события,
//     call_id и subscription_id
//   - Фоновый ping для контроля живости соединения
//
// # Подключение
//
//	client := wsclient.New(wsclient.DefaultConfig("ws://localhost:8080/ws"))
//	defer client.Close()
//
// # Ожидание одного события
//
//	handle := client.AwaitEventTimeout(
//	    wsclient.NewFilter().CallReturnForID(7),
//	    30*time.Second,
//	)
//	client.Send(api.NewSignedCallMessage(call))
//	event, err := handle.Await(ctx)
//
// # Постоянная подписка
//
//	events := client.ReceiveEvents(wsclient.NewFilter().SubscriptionDataForID(subID))
//	defer events.Close()
//	for event := range events.Events() { ... }
//
// Кадры, не разбирающиеся как известные сообщения сервера, молча
// отбрасываются: это сознательная терпимость к сообщениям из будущих
// версий протокола.
package wsclient
