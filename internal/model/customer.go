package model

type Customer struct {
	ID   string `json:"-"`
	Name string `json:"name"`
}
