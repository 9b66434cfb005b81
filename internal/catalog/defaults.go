package catalog

import (
	"fmt"

	"github.com/foxzi/relaydesk/internal/models"
)

// Trigger routes of the seeded templates.
const (
	RouteOTP            = "/api/email/otp"
	RouteRegistration   = "/api/email/registration"
	RoutePasswordChange = "/api/email/password-change"
)

const emailLayout = `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>%s</title>
</head>
<body style="font-family: Arial, sans-serif; color: #333; max-width: 600px; margin: 0 auto;">
%s
  <p style="color: #888; font-size: 12px;">&copy; {current_year} {company_name}. All rights reserved.</p>
</body>
</html>`

// DefaultTemplates returns the templates every new project starts with.
func DefaultTemplates() []*models.Template {
	return []*models.Template{
		{
			Name:    "OTP Verification",
			Type:    models.TemplateTypeEmail,
			Subject: "Your verification code - {company_name}",
			Content: layout("OTP Verification", `  <h1>Verification code</h1>
  <p>Hello {user_name},</p>
  <p>Use this code to finish signing in to your {company_name} account:</p>
  <p style="font-size: 32px; font-weight: bold; letter-spacing: 8px;">{otp_code}</p>
  <p>The code expires in 10 minutes. If you did not request it, ignore this email.</p>`),
			Variables:    []string{"user_name", "otp_code", "company_name", "current_year"},
			TriggerRoute: RouteOTP,
		},
		{
			Name:    "Registration Notice",
			Type:    models.TemplateTypeEmail,
			Subject: "Welcome to {company_name}",
			Content: layout("Registration Notice", `  <h1>Welcome, {user_name}!</h1>
  <p>Your {company_name} account has been created.</p>
  <ul>
    <li>Email: {user_email}</li>
    <li>Registered: {registration_date}</li>
  </ul>`),
			Variables:    []string{"user_name", "user_email", "company_name", "registration_date", "current_year"},
			TriggerRoute: RouteRegistration,
		},
		{
			Name:    "Change Password Template",
			Type:    models.TemplateTypeEmail,
			Subject: "Your password was changed - {company_name}",
			Content: layout("Password Changed", `  <h1>Password changed</h1>
  <p>Hello {user_name},</p>
  <p>The password for {user_email} was changed on {change_date} at {change_time} from {ip_address}.</p>
  <p>If this was not you, reset your password and contact support immediately.</p>`),
			Variables:    []string{"user_name", "user_email", "company_name", "change_date", "change_time", "ip_address", "current_year"},
			TriggerRoute: RoutePasswordChange,
		},
	}
}

func layout(title, body string) string {
	return fmt.Sprintf(emailLayout, title, body)
}
