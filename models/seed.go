package models

// SeedCard is a credit card inserted by the seed command.
type SeedCard struct {
	Name     string
	BankName string
}

// DefaultCreditCards is the partner card catalogue loaded into fresh databases.
var DefaultCreditCards = []SeedCard{
	{Name: "Air India Signature", BankName: "SBI"},
	{Name: "Rewards", BankName: "AXIS"},
	{Name: "Centurion", BankName: "AMEX"},
	{Name: "Indulge", BankName: "IndusInd"},
	{Name: "First Preferred Credit Card", BankName: "YES"},
	{Name: "ThankYou Preferred", BankName: "Citibank"},
	{Name: "Pride Platinum", BankName: "AXIS"},
	{Name: "Platinum Plus Credit Card", BankName: "HDFC"},
	{Name: "Ink Business Cash", BankName: "Chase"},
	{Name: "The Platinum Card", BankName: "AMEX"},
	{Name: "Membership Rewards", BankName: "AMEX"},
	{Name: "Etihad Guest Premier", BankName: "SBI"},
	{Name: "Ink Plus", BankName: "Chase"},
	{Name: "Propel American Express", BankName: "Wells Fargo"},
	{Name: "Diners Club Rewardz Credit Card", BankName: "HDFC"},
	{Name: "PRIVATE Credit Card", BankName: "YES"},
	{Name: "Air India Platinum", BankName: "SBI"},
	{Name: "Venture X Rewards", BankName: "Capital One"},
	{Name: "Iconia", BankName: "IndusInd"},
	{Name: "Business Gold", BankName: "AMEX"},
}

// DemoUserEmails are created by the seed command with a shared demo password.
var DemoUserEmails = []string{"demo@pneuma.club", "admin@pneuma.club"}
