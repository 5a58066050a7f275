package domain

import "time"

// ChatChannel — канал общения поставщика и покупателя по конкретному заказу.
// На один заказ существует не более одного канала (уникальность по OrderID);
// повторное создание при redelivery сообщения — это успех, а не ошибка.
type ChatChannel struct {
	ID             int64
	OrderID        int64
	SupplierUserID int64
	CustomerUserID int64
	Name           string
	Active         bool
	CreatedAt      time.Time
}

// Participant проверяет, входит ли пользователь в канал.
func (c ChatChannel) Participant(userID int64) bool {
	return c.SupplierUserID == userID || c.CustomerUserID == userID
}
