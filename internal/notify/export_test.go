package notify

var NewMailerWithDialer = newMailer
