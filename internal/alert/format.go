package alert

import "fmt"

func endpoint(ip string, port *uint16) string {
	if port == nil {
		return ip
	}
	return fmt.Sprintf("%s:%d", ip, *port)
}
