// Package relay — WebSocket-сервер протокола подписанных вызовов.
//
// Сервер принимает соединения, проверяет допуск каждого подписанного
// вызова (подпись, свежесть метки времени, неиспользованность nonce у
// актора участника) и диспетчеризует методы к акторам комнат. Ответы
// коррелируются с вызовами по call_id; данные подписок текут обратно
// асинхронно.
//
// Любая ошибка допуска наружу выглядит одинаково: invalid_signature
// без подробностей. Клиент не должен уметь отличать украденный ключ от
// повторённого nonce.
package relay
