package domain

// Role — роль пользователя, выданная внешним сервисом аутентификации.
type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
	RoleAdmin  Role = "admin"
)

// Valid проверяет, что роль известна.
func (r Role) Valid() bool {
	return r == RoleBuyer || r == RoleSeller || r == RoleAdmin
}

// Actor — аутентифицированный участник запроса.
type Actor struct {
	ID   string
	Role Role
}

// IsAdmin сообщает, что у участника права администратора.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// CanView — покупатель заказа, продавец любой его позиции или админ.
func (a Actor) CanView(order *Order) bool {
	if a.ID == "" {
		return false
	}
	return a.IsAdmin() || order.BuyerID == a.ID || order.HasSeller(a.ID)
}

// CanTransition проверяет права на перевод заказа в статус to.
// Продавец ведёт заказ вперёд, покупатель может отменить или подтвердить доставку,
// админ может всё.
func (a Actor) CanTransition(order *Order, to OrderStatus) bool {
	if a.ID == "" {
		return false
	}
	if a.IsAdmin() {
		return true
	}

	isBuyer := order.BuyerID == a.ID
	isSeller := order.HasSeller(a.ID)

	switch to {
	case OrderStatusCancelled:
		return isBuyer
	case OrderStatusDelivered:
		return isBuyer || isSeller
	default:
		return isSeller
	}
}
