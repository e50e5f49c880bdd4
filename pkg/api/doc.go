// Package api описывает протокол обмена между клиентом и сервером комнат:
//   - Скалярные типы провода: Nonce, Identity, Signature, RoomID
//   - Подписанные вызовы методов (ECDSA P-256 поверх канонического JSON)
//   - Внешние конверты сообщений с дискриминатором message_type
//
// # Формат сообщений
//
// Клиент -> сервер:
//
//	{"message_type": "ping"}
//	{"message_type": "signed_method_call", "message_content": {
//	    "call_id": 7,
//	    "signed_call": "{\"caller_id\":\"...\",\"nonce\":\"0_1700000000\",\"method_name\":\"create_room\"}",
//	    "signature": "base64..."
//	}}
//
// Сервер -> клиент:
//
//	{"message_type": "pong"}
//	{"message_type": "method_call_return", "message_content": {
//	    "call_id": 7, "return_type": "success", "return_data": {"room_id": "ABCDEF"}
//	}}
//	{"message_type": "subscription_data", "message_content": {...}}
//	{"message_type": "info", "message_content": "text"}
//
// Поле signed_call хранится как строка: подпись проверяется ровно над теми
// байтами, которые были подписаны. Повторная сериализация разобранной
// структуры для проверки не допускается.
package api
