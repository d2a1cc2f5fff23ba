package dto

import (
	"github.com/aqylbek/ambulance-dispatch/pkg/validator"
)

type LoginRequest struct {
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

func (r *LoginRequest) Validate(v *validator.Validator) {
	v.Check(r.Phone != "", "phone", "must be provided")
	v.Check(validator.PhoneRX.MatchString(r.Phone), "phone", "must be a valid phone number")
	v.Check(r.Password != "", "password", "must be provided")
}
