package main

import (
	"fmt"

	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"

	"github.com/patelbharav/SolrMigration-To-OpenSearch/internal/naming"
)

const dashboardLocalPort = 8200

// sessionCommand is the SSM port forward from localhost to the domain
// through the workbench host.
func sessionCommand(instanceID, endpoint string) string {
	return fmt.Sprintf(`aws ssm start-session --target %s --document-name AWS-StartPortForwardingSessionToRemoteHost --parameters '{"host":["%s"],"portNumber":["443"], "localPortNumber":["%d"]}'`,
		instanceID, endpoint, dashboardLocalPort)
}

// exportOutputs publishes the operator-facing results of a deployment.
func exportOutputs(ctx *pulumi.Context, domain *DomainResources, workbench *WorkbenchResources, storage *StorageResources) {
	ctx.Export("OpensearchEndpoint", domain.Domain.Endpoint)
	ctx.Export("OpensearchSecretName", domain.Secret.Name)
	ctx.Export("WorkBenchInstanceID", workbench.Instance.ID())
	ctx.Export("WorkBenchPrivateIP", workbench.Instance.PrivateIp)
	ctx.Export("PackageBucketName", storage.Bucket.Bucket)
	ctx.Export("DataBucketName", storage.Bucket.Bucket.ApplyT(naming.DataPath).(pulumi.StringOutput))
	ctx.Export("OpenSearchDashboardSSMSessionCommand",
		pulumi.All(workbench.Instance.ID().ToStringOutput(), domain.Domain.Endpoint).ApplyT(func(args []interface{}) string {
			return sessionCommand(args[0].(string), args[1].(string))
		}).(pulumi.StringOutput))
}
