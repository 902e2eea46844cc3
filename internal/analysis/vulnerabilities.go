package analysis

import (
	"strconv"

	"netmonitor/internal/models"
)

var commonPorts = map[uint16]string{
	20:   "FTP-DATA",
	21:   "FTP",
	22:   "SSH",
	23:   "Telnet",
	25:   "SMTP",
	53:   "DNS",
	80:   "HTTP",
	110:  "POP3",
	135:  "MSRPC",
	139:  "NetBIOS",
	143:  "IMAP",
	161:  "SNMP",
	443:  "HTTPS",
	445:  "SMB",
	512:  "rexec",
	513:  "rlogin",
	514:  "rsh",
	3306: "MySQL",
	3389: "RDP",
	5432: "PostgreSQL",
	5900: "VNC",
	6379: "Redis",
	8080: "HTTP-Alt",
}

// GetServiceName returns the common name for a port, or the port number as a string.
func GetServiceName(port uint16) string {
	if name, ok := commonPorts[port]; ok {
		return name
	}
	return strconv.Itoa(int(port))
}

// VulnerabilityTable maps a listening port to the exposure it represents.
type VulnerabilityTable map[uint16]models.VulnerabilityRule

// DefaultVulnerabilities lists services that should not be reachable on a
// trusted segment, or only with care.
var DefaultVulnerabilities = NewVulnerabilityTable(
	rule(21, "FTP service exposed (cleartext credentials)", models.SeverityHigh),
	rule(23, "Telnet service exposed (cleartext remote shell)", models.SeverityHigh),
	rule(25, "SMTP service exposed (possible open relay)", models.SeverityMedium),
	rule(80, "Unencrypted HTTP service", models.SeverityLow),
	rule(110, "POP3 service exposed (cleartext mail credentials)", models.SeverityMedium),
	rule(135, "MSRPC endpoint mapper exposed", models.SeverityMedium),
	rule(139, "NetBIOS session service exposed", models.SeverityMedium),
	rule(143, "IMAP service exposed (cleartext mail credentials)", models.SeverityMedium),
	rule(445, "SMB service exposed", models.SeverityHigh),
	rule(512, "rexec service exposed", models.SeverityHigh),
	rule(513, "rlogin service exposed", models.SeverityHigh),
	rule(514, "rsh service exposed", models.SeverityHigh),
	rule(3389, "RDP service exposed", models.SeverityMedium),
	rule(5900, "VNC service exposed", models.SeverityMedium),
)

func rule(port uint16, desc string, sev models.Severity) models.VulnerabilityRule {
	return models.VulnerabilityRule{
		Port:        port,
		Service:     GetServiceName(port),
		Description: desc,
		Severity:    sev,
	}
}

// NewVulnerabilityTable indexes rules by port. Later rules win.
func NewVulnerabilityTable(rules ...models.VulnerabilityRule) VulnerabilityTable {
	t := make(VulnerabilityTable, len(rules))
	for _, r := range rules {
		t[r.Port] = r
	}
	return t
}
