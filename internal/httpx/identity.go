package httpx

import (
	"net/http"
	"strconv"
)

// Заголовки идентификации, проставляемые API-gateway после аутентификации.
// Сервис доверяет им: проверка токена — ответственность gateway.
const (
	headerUserID    = "X-User-Id"
	headerCompanyID = "X-Company-Id"
)

// identity — аутентифицированный пользователь запроса.
type identity struct {
	UserID    int64
	CompanyID int64
}

// requireIdentity извлекает identity из заголовков; при отсутствии пишет 401.
func requireIdentity(w http.ResponseWriter, r *http.Request) (identity, bool) {
	userID, err := strconv.ParseInt(r.Header.Get(headerUserID), 10, 64)
	if err != nil || userID <= 0 {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing or invalid X-User-Id header"})
		return identity{}, false
	}
	companyID, err := strconv.ParseInt(r.Header.Get(headerCompanyID), 10, 64)
	if err != nil || companyID <= 0 {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing or invalid X-Company-Id header"})
		return identity{}, false
	}
	return identity{UserID: userID, CompanyID: companyID}, true
}

// pathID извлекает положительный int64 из параметра пути.
func pathID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
