// Package roomapi — HTTP/WebSocket клиент акторов комнат.
//
// Каждая комната — отдельный актор, доступный по пути /rooms/{id}
// базового адреса. Команды отправляются POST-запросом с JSON-телом,
// помеченным полем message_type; ответом служит голый JSON-булев
// индикатор успеха. Содержательный результат от клиентов скрывается
// намеренно: наружу уходит только "принято/не принято".
//
// Подписка — единственная долгоживущая операция: она повышает
// HTTP-запрос до WebSocket, по которому комната толкает данные
// подписчику до закрытия.
package roomapi
