package api

// Типы сообщений протокола синхронизации.
// Каждое сообщение передается как один JSON объект по постоянному
// двунаправленному соединению.
const (
	TypeAuth      = "auth"       // клиент → сервер: запрос аутентификации
	TypeAuthOK    = "auth_ok"    // сервер → клиент: аутентификация успешна
	TypeAuthError = "auth_error" // сервер → клиент: аутентификация отклонена
	TypePush      = "push"       // клиент → сервер: отправка локальных изменений
	TypePushOK    = "push_ok"    // сервер → клиент: изменения приняты
	TypePull      = "pull"       // клиент → сервер: запрос изменений с сервера
	TypePullOK    = "pull_ok"    // сервер → клиент: ответ с изменениями
	TypeChanges   = "changes"    // сервер → клиент: изменения с другого устройства
	TypeError     = "error"      // сервер → клиент: ошибка протокола
)

// Коды ошибок, используемые в AuthError и ErrorMessage.
const (
	CodeInvalidToken   = "invalid_token"   // токен не прошел проверку
	CodeAuthTimeout    = "auth_timeout"    // auth не получен вовремя
	CodeBadMessage     = "bad_message"     // сообщение не удалось разобрать
	CodeBadChange      = "bad_change"      // изменение не удалось декодировать
	CodeStorageFailure = "storage_failure" // запись в change store не удалась
)

// Header общие поля каждого сообщения протокола.
// Используется для определения типа сообщения до полного разбора.
type Header struct {
	Type      string `json:"type"`                 // тип сообщения (константы Type*)
	RequestID string `json:"request_id,omitempty"` // корреляция запрос/ответ
}

// SerializedChange представляет одно колоночное изменение в транспортном виде.
// Счетчики передаются десятичными строками (JSON number теряет точность
// на значениях за пределами 2^53), pk и site_id кодируются base64.
// Round-trip через models.DeserializeChange/SerializeChange без потерь.
type SerializedChange struct {
	Table      string `json:"table"`       // имя таблицы
	PK         string `json:"pk"`          // ключ строки, base64
	CID        string `json:"cid"`         // идентификатор колонки
	Val        any    `json:"val"`         // значение колонки
	ColVersion string `json:"col_version"` // логические часы колонки, десятичная строка
	DBVersion  string `json:"db_version"`  // версия БД источника, десятичная строка
	SiteID     string `json:"site_id"`     // идентификатор реплики, base64
	CL         string `json:"cl"`          // causal length, десятичная строка
	Seq        string `json:"seq"`         // порядок внутри транзакции, десятичная строка
}

// AuthRequest запрос аутентификации, первое сообщение после установки соединения.
type AuthRequest struct {
	Header
	Token    string `json:"token"`     // токен устройства
	DeviceID string `json:"device_id"` // идентификатор устройства
	SiteID   string `json:"site_id"`   // hex идентификатор локальной реплики
}

// AuthOK ответ сервера на успешную аутентификацию.
type AuthOK struct {
	Header
	UserID        string `json:"user_id"`        // аутентифицированный пользователь
	ServerVersion string `json:"server_version"` // текущая версия change store для пользователя
}

// AuthError ответ сервера на отклоненную аутентификацию.
// После отправки сервер закрывает соединение.
type AuthError struct {
	Header
	Code    string `json:"code"`    // код ошибки
	Message string `json:"message"` // описание ошибки
}

// PushRequest отправка локальных изменений на сервер.
type PushRequest struct {
	Header
	Changes     []SerializedChange `json:"changes"`      // изменения в порядке db_version, seq
	FromVersion string             `json:"from_version"` // версия, с которой собраны изменения
}

// PushOK подтверждение приема изменений сервером.
// Клиент продвигает lastPushedVersion только после получения этого ответа.
type PushOK struct {
	Header
	Applied       int    `json:"applied"`        // количество сохраненных изменений
	ServerVersion string `json:"server_version"` // версия последнего сохраненного изменения
}

// PullRequest запрос изменений, накопившихся на сервере.
type PullRequest struct {
	Header
	SinceVersion string `json:"since_version"` // вернуть изменения с server_version > since
}

// PullOK ответ сервера с изменениями.
type PullOK struct {
	Header
	Changes       []SerializedChange `json:"changes"`        // изменения по возрастанию server_version
	ServerVersion string             `json:"server_version"` // текущая версия change store
}

// ChangesMessage широковещательное сообщение: изменения, принятые от другого
// устройства того же пользователя. Может прийти в любой момент, пока
// соединение открыто, независимо от push/pull в полете.
type ChangesMessage struct {
	Header
	Changes      []SerializedChange `json:"changes"`        // сохраненные сервером изменения
	FromDeviceID string             `json:"from_device_id"` // устройство-источник
}

// ErrorMessage сообщение об ошибке протокола.
type ErrorMessage struct {
	Header
	Code    string `json:"code"`    // код ошибки
	Message string `json:"message"` // описание ошибки
}
