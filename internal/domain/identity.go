package domain

// Identity — аутентифицированный контекст вызывающего, восстановленный из
// проверенного bearer-токена.
type Identity struct {
	// UserID — идентификатор пользователя из claims токена.
	UserID string
	// Name — отображаемое имя (опционально в claims).
	Name string
	// Token — исходная строка токена; пробрасывается в downstream-сервисы
	// как Authorization-заголовок от имени пользователя.
	Token string
}
