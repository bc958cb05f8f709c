package main

import (
	"fmt"
	"sort"

	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/ec2"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
	"github.com/samber/lo"
)

// NetworkResources is the network every other unit is placed in, either
// created here or looked up by id.
type NetworkResources struct {
	VpcID            pulumi.StringInput
	CidrBlock        pulumi.StringInput
	PrivateSubnetIDs pulumi.StringArray

	// anchors are the resources private egress depends on. Empty for an
	// existing network.
	anchors []pulumi.Resource
}

// createNetwork creates the VPC, or looks up the configured one
func createNetwork(ctx *pulumi.Context, settings *Settings) (*NetworkResources, error) {
	if settings.VpcID != "" {
		return lookupNetwork(ctx, settings.VpcID)
	}
	return createVpcResources(ctx, settings)
}

// createVpcResources builds a VPC with one public and one private subnet per
// zone. Private subnets share a single NAT gateway.
func createVpcResources(ctx *pulumi.Context, settings *Settings) (*NetworkResources, error) {
	name := settings.Names.Vpc

	// Create VPC
	vpc, err := ec2.NewVpc(ctx, name, &ec2.VpcArgs{
		CidrBlock:          pulumi.String(settings.Cidr),
		EnableDnsHostnames: pulumi.Bool(true),
		EnableDnsSupport:   pulumi.Bool(true),
		Tags:               nameTag(name),
	})
	if err != nil {
		return nil, err
	}

	// Create Internet Gateway
	igw, err := ec2.NewInternetGateway(ctx, name+"-igw", &ec2.InternetGatewayArgs{
		VpcId: vpc.ID(),
		Tags:  nameTag(name + "-igw"),
	})
	if err != nil {
		return nil, err
	}

	// Create public route table
	publicRouteTable, err := ec2.NewRouteTable(ctx, name+"-public-rt", &ec2.RouteTableArgs{
		VpcId: vpc.ID(),
		Routes: ec2.RouteTableRouteArray{
			&ec2.RouteTableRouteArgs{
				CidrBlock: pulumi.String("0.0.0.0/0"),
				GatewayId: igw.ID(),
			},
		},
		Tags: nameTag(name + "-public-rt"),
	})
	if err != nil {
		return nil, err
	}

	var publicSubnets, privateSubnets []*ec2.Subnet
	for i, zone := range settings.AvailabilityZones {
		public, err := ec2.NewSubnet(ctx, fmt.Sprintf("%s-public-%d", name, i+1), &ec2.SubnetArgs{
			VpcId:               vpc.ID(),
			CidrBlock:           pulumi.String(settings.SubnetCidrs.Public[i]),
			AvailabilityZone:    pulumi.String(zone),
			MapPublicIpOnLaunch: pulumi.Bool(true),
			Tags:                nameTag(fmt.Sprintf("%s-public-%d", name, i+1)),
		})
		if err != nil {
			return nil, err
		}
		_, err = ec2.NewRouteTableAssociation(ctx, fmt.Sprintf("%s-public-rt-assoc-%d", name, i+1), &ec2.RouteTableAssociationArgs{
			SubnetId:     public.ID(),
			RouteTableId: publicRouteTable.ID(),
		})
		if err != nil {
			return nil, err
		}
		publicSubnets = append(publicSubnets, public)

		private, err := ec2.NewSubnet(ctx, fmt.Sprintf("%s-private-%d", name, i+1), &ec2.SubnetArgs{
			VpcId:            vpc.ID(),
			CidrBlock:        pulumi.String(settings.SubnetCidrs.Private[i]),
			AvailabilityZone: pulumi.String(zone),
			Tags:             nameTag(fmt.Sprintf("%s-private-%d", name, i+1)),
		})
		if err != nil {
			return nil, err
		}
		privateSubnets = append(privateSubnets, private)
	}

	// Create NAT gateway in the first public subnet
	eip, err := ec2.NewEip(ctx, name+"-nat-eip", &ec2.EipArgs{
		Domain: pulumi.String("vpc"),
		Tags:   nameTag(name + "-nat-eip"),
	})
	if err != nil {
		return nil, err
	}

	nat, err := ec2.NewNatGateway(ctx, name+"-nat", &ec2.NatGatewayArgs{
		AllocationId: eip.ID(),
		SubnetId:     publicSubnets[0].ID(),
		Tags:         nameTag(name + "-nat"),
	}, pulumi.DependsOn([]pulumi.Resource{igw}))
	if err != nil {
		return nil, err
	}

	// Create private route table through the NAT gateway
	privateRouteTable, err := ec2.NewRouteTable(ctx, name+"-private-rt", &ec2.RouteTableArgs{
		VpcId: vpc.ID(),
		Routes: ec2.RouteTableRouteArray{
			&ec2.RouteTableRouteArgs{
				CidrBlock:    pulumi.String("0.0.0.0/0"),
				NatGatewayId: nat.ID(),
			},
		},
		Tags: nameTag(name + "-private-rt"),
	})
	if err != nil {
		return nil, err
	}

	anchors := []pulumi.Resource{vpc, nat}
	for i, private := range privateSubnets {
		assoc, err := ec2.NewRouteTableAssociation(ctx, fmt.Sprintf("%s-private-rt-assoc-%d", name, i+1), &ec2.RouteTableAssociationArgs{
			SubnetId:     private.ID(),
			RouteTableId: privateRouteTable.ID(),
		})
		if err != nil {
			return nil, err
		}
		anchors = append(anchors, assoc)
	}

	// Gateway endpoint so bucket traffic from the private subnets stays off the NAT.
	s3Endpoint, err := ec2.NewVpcEndpoint(ctx, name+"-s3-endpoint", &ec2.VpcEndpointArgs{
		VpcId:           vpc.ID(),
		ServiceName:     pulumi.String(fmt.Sprintf("com.amazonaws.%s.s3", settings.Region)),
		VpcEndpointType: pulumi.String("Gateway"),
		RouteTableIds:   pulumi.StringArray{privateRouteTable.ID()},
		Tags:            nameTag(name + "-s3-endpoint"),
	})
	if err != nil {
		return nil, err
	}
	anchors = append(anchors, s3Endpoint)

	return &NetworkResources{
		VpcID:     vpc.ID(),
		CidrBlock: vpc.CidrBlock,
		PrivateSubnetIDs: lo.Map(privateSubnets, func(s *ec2.Subnet, _ int) pulumi.StringInput {
			return s.ID()
		}),
		anchors: anchors,
	}, nil
}

// lookupNetwork adopts an existing VPC. One private subnet is taken from each
// of the first two zones that have one.
func lookupNetwork(ctx *pulumi.Context, vpcID string) (*NetworkResources, error) {
	vpc, err := ec2.LookupVpc(ctx, &ec2.LookupVpcArgs{Id: pulumi.StringRef(vpcID)})
	if err != nil {
		return nil, fmt.Errorf("failed to look up vpc %s: %w", vpcID, err)
	}

	subnets, err := ec2.GetSubnets(ctx, &ec2.GetSubnetsArgs{
		Filters: []ec2.GetSubnetsFilter{
			{Name: "vpc-id", Values: []string{vpcID}},
			{Name: "map-public-ip-on-launch", Values: []string{"false"}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list subnets of %s: %w", vpcID, err)
	}
	ids := append([]string(nil), subnets.Ids...)
	sort.Strings(ids)

	type placed struct{ id, zone string }
	var all []placed
	for _, id := range ids {
		subnet, err := ec2.LookupSubnet(ctx, &ec2.LookupSubnetArgs{Id: pulumi.StringRef(id)})
		if err != nil {
			return nil, fmt.Errorf("failed to look up subnet %s: %w", id, err)
		}
		all = append(all, placed{id: id, zone: subnet.AvailabilityZone})
	}
	perZone := lo.UniqBy(all, func(p placed) string { return p.zone })
	if len(perZone) < 2 {
		return nil, fmt.Errorf("vpc %s needs private subnets in 2 availability zones, found %d", vpcID, len(perZone))
	}
	perZone = perZone[:2]

	ctx.Log.Info(fmt.Sprintf("Using existing VPC %s with private subnets %v", vpcID,
		lo.Map(perZone, func(p placed, _ int) string { return p.id })), nil)

	return &NetworkResources{
		VpcID:     pulumi.String(vpc.Id),
		CidrBlock: pulumi.String(vpc.CidrBlock),
		PrivateSubnetIDs: lo.Map(perZone, func(p placed, _ int) pulumi.StringInput {
			return pulumi.String(p.id)
		}),
	}, nil
}

func nameTag(name string) pulumi.StringMap {
	return pulumi.StringMap{"Name": pulumi.String(name)}
}
