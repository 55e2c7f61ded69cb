// Package bot: ядро чат-бота радио: принимает сообщения комнат, разбирает
// команды (!play, !stop, !url, !np, !status, !queue, !help), ходит в
// музыкальный бэкенд и отвечает в чат ровно одним сообщением на команду.
//
// Устройство:
//   - Dispatcher выполняет одну команду: обращается к Backend, обновляет
//     playback.Store и формирует текст ответа. Ошибки бэкенда превращаются
//     в короткое сообщение, бот при этом продолжает работать.
//   - У каждой комнаты своя очередь (lanes): команды одной комнаты идут
//     строго по порядку, разные комнаты обрабатываются параллельно.
//   - Запись в Store идёт по билету, взятому в начале команды, поэтому
//     поздний ответ на старую команду не перетрёт результат более новой.
//   - Анонсер (StartAnnouncer) периодически сверяет текущий трек с
//     бэкендом и сообщает о смене трека в чат.
//
// Жизненный цикл:
//   - Создать бота через New(backend, Options{...}).
//   - Подключить комнату: SetRoomClient(rc) или SetSender(s) для своего адаптера.
//   - (Опционально) SetMediaKeys(room), StartAnnouncer(interval).
//   - Запустить Start() и остановить Stop().
//
// Пример:
//
//	b := bot.New(client, bot.Options{SelfID: "radiobot", ReplyPrefix: "[bot] "})
//	b.SetRoomClient(rc)
//	if err := b.Start(); err != nil { log.Fatal(err) }
//	defer b.Stop()
package bot
