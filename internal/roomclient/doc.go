// Package roomclient реализует WebSocket-клиент виртуальной комнаты.
// Клиент подключается к серверу комнат, авторизуется токеном, входит в
// заданные комнаты и дальше получает сообщения чата и отправляет ответы.
//
// Кадры протокола: бинарный protobuf google.protobuf.Struct с полем "type":
//
//   - auth  {token, user_id}          клиент → сервер, первым кадром;
//   - join  {room}                    клиент → сервер, на каждую комнату;
//   - chat  {room, sender, message}   в обе стороны;
//   - error {message}                 сервер → клиент.
//
// События (колбэки поля структуры):
//   - OnConnecting, OnConnected, OnMessage, OnDisconnected, OnError.
//
// Устойчивость:
//   - Запись в сокет сериализована (мьютекс + write-deadline).
//   - Keep-alive: ping каждые 10s, без трафика 30s соединение считается мёртвым.
//   - При обрыве: экспоненциальный реконнект (1s..30s) и повторный вход в комнаты.
//
// Пример:
//
//	rc := roomclient.New(roomclient.Config{URL: "wss://rooms.example/ws", Token: tok, Rooms: []string{"lobby"}})
//	rc.OnMessage = func(ev roomclient.ChatEvent) { fmt.Println(ev.Sender, ev.Text) }
//	if err := rc.Connect(ctx); err != nil { log.Fatal(err) }
//	defer rc.Disconnect()
//	_ = rc.Send("lobby", "hello")
package roomclient
