package smtpprobe

// Category groups SMTP reply codes by how a probe should treat them.
type Category string

const (
	CategorySuccess   Category = "success"
	CategoryTemporary Category = "temporary_failure"
	CategoryPermanent Category = "permanent_failure"
	CategoryUnknown   Category = "unknown"
)

// CodeInfo describes an SMTP reply code.
type CodeInfo struct {
	Code        int
	Category    Category
	Description string

	// CatchAll is set when the code hints that the server accepts any recipient.
	CatchAll bool
}

var knownCodes = map[int]CodeInfo{
	220: {Category: CategorySuccess, Description: "service ready"},
	221: {Category: CategorySuccess, Description: "closing transmission channel"},
	250: {Category: CategorySuccess, Description: "requested action okay"},
	251: {Category: CategorySuccess, Description: "user not local, will forward", CatchAll: true},
	252: {Category: CategorySuccess, Description: "cannot verify user, will attempt delivery", CatchAll: true},
	421: {Category: CategoryTemporary, Description: "service not available"},
	450: {Category: CategoryTemporary, Description: "mailbox unavailable (busy or greylisted)"},
	451: {Category: CategoryTemporary, Description: "local error in processing"},
	452: {Category: CategoryTemporary, Description: "insufficient system storage"},
	500: {Category: CategoryPermanent, Description: "syntax error, command unrecognized"},
	501: {Category: CategoryPermanent, Description: "syntax error in parameters"},
	502: {Category: CategoryPermanent, Description: "command not implemented"},
	503: {Category: CategoryPermanent, Description: "bad sequence of commands"},
	550: {Category: CategoryPermanent, Description: "mailbox unavailable"},
	551: {Category: CategoryPermanent, Description: "user not local"},
	552: {Category: CategoryPermanent, Description: "exceeded storage allocation"},
	553: {Category: CategoryPermanent, Description: "mailbox name not allowed"},
	554: {Category: CategoryPermanent, Description: "transaction failed"},
}

// Classify returns the handling information for an SMTP reply code.
func Classify(code int) CodeInfo {
	if info, ok := knownCodes[code]; ok {
		info.Code = code
		return info
	}
	info := CodeInfo{Code: code, Category: CategoryUnknown, Description: "unrecognized reply"}
	switch code / 100 {
	case 2:
		info.Category = CategorySuccess
	case 4:
		info.Category = CategoryTemporary
	case 5:
		info.Category = CategoryPermanent
	}
	return info
}

// Positive reports whether code is a 2xx completion reply.
func Positive(code int) bool {
	return code >= 200 && code < 300
}
