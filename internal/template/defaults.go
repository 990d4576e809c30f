package template

// DefaultSubject is the subject used when the caller provides none.
const DefaultSubject = "Your Exam Portal Access Link - {program_name}"

// Placeholder describes one renderer token for preview/help output.
type Placeholder struct {
	Token       string
	Description string
}

// Placeholders lists the tokens the renderer substitutes, in order.
func Placeholders() []Placeholder {
	return []Placeholder{
		{"{name}", "Student name"},
		{"{email}", "Student email"},
		{"{login_link}", "Unique login URL"},
		{"{candidate_id}", "Candidate ID"},
		{"{program_name}", "Program name"},
		{"{round_name}", "Round name"},
		{"{expires_at}", "Link expiry time"},
		{"{session_duration}", "Session duration"},
	}
}

// SampleFields returns representative values for template previews.
func SampleFields() map[string]string {
	return map[string]string{
		"name":             "John Doe",
		"email":            "john.doe@example.com",
		"login_link":       "https://exam-portal.example.com/login/abc123",
		"candidate_id":     "12345",
		"program_name":     "Software Engineering Assessment",
		"round_name":       "Technical Round 1",
		"expires_at":       "2026-03-17 23:59:59",
		"session_duration": "730h",
	}
}

// DefaultBody is the built-in HTML body used when no template file is given.
const DefaultBody = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body {
            font-family: Arial, sans-serif;
            line-height: 1.6;
            color: #333;
            max-width: 600px;
            margin: 0 auto;
            padding: 20px;
            background-color: #f4f4f4;
        }
        .container {
            background: #ffffff;
            border-radius: 10px;
            overflow: hidden;
        }
        .header {
            background: #667eea;
            color: white;
            padding: 30px;
            text-align: center;
        }
        .content {
            padding: 30px;
        }
        .button {
            display: inline-block;
            padding: 15px 30px;
            background: #667eea;
            color: white;
            text-decoration: none;
            border-radius: 5px;
            margin: 20px 0;
            font-weight: bold;
        }
        .info-box {
            background: #f8f9fa;
            padding: 20px;
            border-left: 4px solid #667eea;
            margin: 20px 0;
        }
        .footer {
            background: #f8f9fa;
            padding: 20px;
            text-align: center;
            font-size: 12px;
            color: #888;
        }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>Exam Portal Access</h1>
            <p>Your exam link is ready</p>
        </div>
        <div class="content">
            <p>Dear <strong>{name}</strong>,</p>
            <p>Your exam portal link for <strong>{program_name}</strong> has been generated.
            Please use the button below to access your exam.</p>
            <center>
                <a href="{login_link}" class="button">Access Exam Portal</a>
            </center>
            <div class="info-box">
                <h3>Exam Details</h3>
                <ul>
                    <li><strong>Candidate ID:</strong> {candidate_id}</li>
                    <li><strong>Program:</strong> {program_name}</li>
                    <li><strong>Round:</strong> {round_name}</li>
                    <li><strong>Link Expires:</strong> {expires_at}</li>
                </ul>
            </div>
            <p>This link is unique to you. Do not share it with anyone, and
            complete the exam before the expiry time.</p>
            <p>Best regards,<br><strong>Recruitment Team</strong></p>
        </div>
        <div class="footer">
            <p>This is an automated email. Please do not reply directly.</p>
        </div>
    </div>
</body>
</html>`
