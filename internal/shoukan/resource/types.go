// Package resource defines the provisioning request model shared by the
// extractor, the dialogue engine and the provisioning backends.
package resource

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Type identifies the kind of cloud resource a request asks for.
type Type string

const (
	TypeVirtualMachine    Type = "virtual_machine"
	TypeStorageAccount    Type = "storage_account"
	TypeWebApp            Type = "web_app"
	TypeSQLDatabase       Type = "sql_database"
	TypeCosmosDB          Type = "cosmos_db"
	TypeVirtualNetwork    Type = "virtual_network"
	TypeContainerInstance Type = "container_instance"
	TypeAKSCluster        Type = "aks_cluster"
	TypeCognitiveService  Type = "cognitive_service"
	TypeMachineLearning   Type = "machine_learning_workspace"
)

// Types lists every supported resource type in declaration order.
var Types = []Type{
	TypeVirtualMachine,
	TypeStorageAccount,
	TypeWebApp,
	TypeSQLDatabase,
	TypeCosmosDB,
	TypeVirtualNetwork,
	TypeContainerInstance,
	TypeAKSCluster,
	TypeCognitiveService,
	TypeMachineLearning,
}

// providerTypes maps each resource type to its ARM provider namespace.
var providerTypes = map[Type]string{
	TypeVirtualMachine:    "Microsoft.Compute/virtualMachines",
	TypeStorageAccount:    "Microsoft.Storage/storageAccounts",
	TypeWebApp:            "Microsoft.Web/sites",
	TypeSQLDatabase:       "Microsoft.Sql/servers/databases",
	TypeCosmosDB:          "Microsoft.DocumentDB/databaseAccounts",
	TypeVirtualNetwork:    "Microsoft.Network/virtualNetworks",
	TypeContainerInstance: "Microsoft.ContainerInstance/containerGroups",
	TypeAKSCluster:        "Microsoft.ContainerService/managedClusters",
	TypeCognitiveService:  "Microsoft.CognitiveServices/accounts",
	TypeMachineLearning:   "Microsoft.MachineLearningServices/workspaces",
}

// Valid reports whether t is one of the supported resource types.
func (t Type) Valid() bool {
	_, ok := providerTypes[t]
	return ok
}

// Provider returns the ARM provider type, e.g. "Microsoft.Web/sites".
func (t Type) Provider() string {
	return providerTypes[t]
}

// ARMID builds the Azure Resource Manager ID of a resource.
func ARMID(subscription, group string, t Type, name string) string {
	return fmt.Sprintf("/subscriptions/%s/resourceGroups/%s/providers/%s/%s", subscription, group, t.Provider(), name)
}

// Display returns the human-readable form: underscores become spaces and the
// result is title-cased ("virtual_machine" -> "Virtual Machine").
func (t Type) Display() string {
	return TitleCase(strings.ReplaceAll(string(t), "_", " "))
}

// ParseType resolves either the enum value or the ARM provider type.
func ParseType(s string) (Type, bool) {
	if t := Type(strings.ToLower(s)); t.Valid() {
		return t, true
	}
	for t, p := range providerTypes {
		if strings.EqualFold(p, s) {
			return t, true
		}
	}
	return "", false
}

// TitleCase upper-cases the first letter of every word and lower-cases the
// rest, so "east us" and "EAST US" both become "East Us".
func TitleCase(s string) string {
	return cases.Title(language.English).String(s)
}

// OSType is the operating-system family of a virtual machine.
type OSType string

const (
	OSWindows OSType = "windows"
	OSLinux   OSType = "linux"
)

// StorageSKU is the redundancy tier of a storage account.
type StorageSKU string

const (
	StorageStandardLRS   StorageSKU = "Standard_LRS"
	StorageStandardGRS   StorageSKU = "Standard_GRS"
	StorageStandardRAGRS StorageSKU = "Standard_RAGRS"
	StoragePremiumLRS    StorageSKU = "Premium_LRS"
)

// AccessTier is the blob access tier of a storage account.
type AccessTier string

const (
	AccessHot  AccessTier = "Hot"
	AccessCool AccessTier = "Cool"
)

// Runtime is the language stack of a web app.
type Runtime string

const (
	RuntimeNode   Runtime = "node"
	RuntimePython Runtime = "python"
	RuntimeDotnet Runtime = "dotnet"
	RuntimeJava   Runtime = "java"
	RuntimePHP    Runtime = "php"
	RuntimeRuby   Runtime = "ruby"
)

// Parameter keys used in Request.Parameters.
const (
	ParamVMType        = "vm_type"
	ParamVMSize        = "vm_size"
	ParamAdminUsername = "admin_username"
	ParamSKU           = "sku"
	ParamAccessTier    = "access_tier"
	ParamRuntime       = "runtime"
	ParamPlan          = "plan"
	ParamImage         = "image"
	ParamPort          = "port"
)

// Tag keys written by the extractor.
const (
	TagEnvironment = "environment"
	TagProject     = "project"
)
