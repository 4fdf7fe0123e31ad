package model

import "time"

type Store struct {
	StoreNumber  int64  `json:"storeNumber"`
	Name         string `json:"storeName"`
	PromoTrigger *int   `json:"promoTrigger,omitempty"`
	PromoSMS     string `json:"promoSms"`
	PromoName    string `json:"promoName"`
	ReviewSMS    string `json:"reviewSms"`
	BirthdaySMS  string `json:"birthdaySms"`
	SMSCount     int64  `json:"smsCount"`
}

// PromoEnabled reports whether the store has a positive point threshold.
func (s Store) PromoEnabled() bool {
	return s.PromoTrigger != nil && *s.PromoTrigger > 0
}

// Customer is a check_ins row. Customers are keyed by phone number.
type Customer struct {
	PhoneNumber     string     `json:"phoneNumber"`
	FirstName       string     `json:"firstName"`
	BirthMonth      string     `json:"birthMonth,omitempty"`
	Points          int        `json:"points"`
	StoreID         int64      `json:"storeId"`
	CheckInTime     *time.Time `json:"checkInTime,omitempty"`
	BirthdayTrigger bool       `json:"birthdayTrigger"`
}

type VisitStatus string

const (
	CheckedIn  VisitStatus = "checked_in"
	CheckedOut VisitStatus = "checked_out"
	NoShow     VisitStatus = "no_show"
)

// Visit is a row of the waitlist (checkin_list).
type Visit struct {
	ID              string      `json:"id"`
	FirstName       string      `json:"firstName"`
	PhoneNumber     string      `json:"phoneNumber"`
	Status          VisitStatus `json:"status"`
	StoreID         int64       `json:"storeId"`
	CheckinTime     time.Time   `json:"checkinTime"`
	CheckoutTime    *time.Time  `json:"checkoutTime,omitempty"`
	EmployeeID      string      `json:"employeeId,omitempty"`
	Promo           bool        `json:"promo"`
	BirthdayTrigger bool        `json:"birthdayTrigger"`
}
