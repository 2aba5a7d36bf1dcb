package dialogue

import (
	"fmt"
	"strings"

	"github.com/bdobrica/Shoukan/internal/shoukan/resource"
)

const (
	textCancelled        = "Operation cancelled. How can I help you?"
	textPermissionDenied = "Sorry, you don't have permission to provision Azure resources. Please contact your administrator."
	textInternalError    = "Sorry, I encountered an error while processing your request. Please try again."
	textNeedMoreInfo     = "I need some more information to create your resource:"
	textNoResources      = "No resources found in the default resource group."
	textListUnavailable  = "Sorry, I couldn't retrieve your resources. Please try again."
	textConfirmReminder  = "Please reply **yes** to create the resource or **no** to cancel."
	textInvalidRequest   = "I'm having trouble understanding the parameters. Please try again with a complete request."
)

const textWelcome = `👋 Welcome! I'm your Azure Resource Provisioning Assistant.

I can help you create various Azure resources like:
• Virtual Machines
• Storage Accounts
• Web Apps
• Databases
• And more!

Just tell me what you want to create, or type 'help' for more information.`

const textHelp = `🤖 **Azure Resource Provisioning Agent**

I can help you create various Azure resources. Here's what I support:

**Virtual Machines**
• Windows and Linux VMs
• Custom sizes and configurations
• Example: "Create a Windows VM with 4GB RAM"

**Storage Accounts**
• Blob, File, Queue, and Table storage
• Different redundancy options
• Example: "Create a storage account for my project"

**Web Apps**
• Node.js, Python, .NET, Java, PHP, Ruby
• App Service with custom plans
• Example: "Deploy a Node.js web app"

**Other Resources**
• SQL Databases
• Cosmos DB
• Virtual Networks
• Container Instances
• AKS Clusters
• And more!

**Commands**
• "help" - Show this message
• "list resources" - Show your existing resources
• "cancel" - Cancel current operation

Just tell me what you want to create! 🚀`

// maxListed caps the number of resources shown in one listing.
const maxListed = 10

func formatResources(rs []resource.Resource) string {
	if len(rs) == 0 {
		return textNoResources
	}
	var sb strings.Builder
	sb.WriteString("Here are your resources:\n\n")
	for i, r := range rs {
		if i == maxListed {
			break
		}
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "• %s (%s) - %s", r.Name, r.Type, r.Location)
	}
	if len(rs) > maxListed {
		fmt.Fprintf(&sb, "\n\n... and %d more resources.", len(rs)-maxListed)
	}
	return sb.String()
}
